// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"amazing-kissan-go/pkg/news"

	"github.com/gin-gonic/gin"
)

// PageHandler 提供静态页面内容与农业新闻头条。
type PageHandler struct {
	newsClient *news.Client
}

// NewPageHandler 创建一个新的 PageHandler 实例。
func NewPageHandler(newsClient *news.Client) *PageHandler {
	return &PageHandler{newsClient: newsClient}
}

// Home 返回首页内容。
func (h *PageHandler) Home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"title":    "Amazing Kissan",
			"subtitle": "Empowering farmers with AI assistance, a peer community and a direct crop marketplace",
			"features": []string{
				"AI farming assistant with topic-wise chat history",
				"Farmer-to-farmer public wall and private messages",
				"Crop marketplace with direct orders and delivery options",
				"Daily agriculture news headlines",
			},
		},
	})
}

// About 返回关于页内容。
func (h *PageHandler) About(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"title": "About Amazing Kissan",
			"body": "Amazing Kissan is a platform built for farmers. It combines an AI " +
				"assistant that remembers your conversations by topic, a community wall " +
				"where farmers help each other, and a marketplace where crops are sold " +
				"directly to buyers without middlemen.",
		},
	})
}

// Contact 返回联系方式页内容。
func (h *PageHandler) Contact(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"title": "Contact Us",
			"email": "support@amazingkissan.example",
			"phone": "+91 1800 000 000",
			"hours": "Mon-Sat, 9:00-18:00 IST",
		},
	})
}

// News 返回最新的农业新闻头条。上游不可用时返回空列表。
func (h *PageHandler) News(c *gin.Context) {
	query := c.DefaultQuery("q", "agriculture farming india")
	articles := h.newsClient.TopHeadlines(c.Request.Context(), query)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": articles, "message": "success"})
}
