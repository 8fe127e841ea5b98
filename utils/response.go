package utils

import "github.com/gin-gonic/gin"

// JSONResponse is the envelope every API response uses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Page is the data of list endpoints.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

// Success writes data with code 0.
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(200, JSONResponse{Code: 0, Message: "success", Data: data})
}

// Paged writes one page of items with the total match count.
func Paged[T any](ctx *gin.Context, items []T, total int64) {
	if items == nil {
		items = []T{}
	}
	Success(ctx, Page[T]{Items: items, Total: total})
}

// Error writes an error envelope and stops the handler chain.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.AbortWithStatusJSON(status, JSONResponse{Code: code, Message: message})
}
