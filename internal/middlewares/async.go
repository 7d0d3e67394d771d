package middlewares

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/internal/utils"
)

// AsyncMiddleware 异步处理中间件
// 将请求的处理逻辑提交到 Worker Pool 中执行，而不是在 Gin 分配的 Goroutine 中直接执行。
// 这样可以严格控制并发处理的请求数量（CPU/DB 密集型操作），防止系统过载。
// 队列满时请求不会被拒绝，而是排队等待处理。
func AsyncMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 如果没有初始化 Worker Pool，直接降级为同步执行
		if utils.GlobalWorkerPool == nil {
			c.Next()
			return
		}

		// 无缓冲通道，确保同步等待 Worker 处理完成
		done := make(chan struct{})

		// gin.Context 不是线程安全的，但主 Goroutine 阻塞在 <-done，
		// 同一时间只有 Worker 在操作 c，所以是安全的
		task := func() {
			defer close(done)
			c.Next()
		}

		// 队列满时这里会阻塞，直到有空位
		utils.GlobalWorkerPool.Submit(task)

		<-done
	}
}
