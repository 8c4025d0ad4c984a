package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", handleHealth)

	api := router.Group("/api")
	api.GET("/summary", handleSummary(db))
	api.GET("/records/unassigned", handleUnassigned(db))
	api.GET("/records/deadlines", handleDeadlines(db))
	api.GET("/records/alarmed", handleAlarmed(db))
	api.GET("/claims/heavy", handleClaimHeavy(db))
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleSummary(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := StateSummary(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"states": summary})
	}
}

func handleUnassigned(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := UnassignedRecords(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

func handleDeadlines(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		buckets, err := DeadlineSummary(db, time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, buckets)
	}
}

func handleAlarmed(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := AlarmedRecords(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

func handleClaimHeavy(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold := 3
		if raw := c.Query("threshold"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a positive integer"})
				return
			}
			threshold = v
		}
		records, err := ClaimHeavyChains(db, threshold)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"threshold": threshold, "records": records})
	}
}
