package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all the routes for the document QA service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/healthz", api.HealthzHandler)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/documents", api.UploadDocumentHandler)
		v1.POST("/documents/samples/:vertical", api.LoadSamplesHandler)
		v1.GET("/documents", api.ListDocumentsHandler)
		v1.DELETE("/documents/:filename", api.RemoveDocumentHandler)
		v1.POST("/query", api.QueryHandler)
		v1.POST("/query/stream", api.QueryStreamHandler)
		v1.POST("/model", api.SelectModelHandler)
	}
}
