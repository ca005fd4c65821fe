package guard

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// signature 单条载荷特征
type signature struct {
	name string
	re   *regexp.Regexp
}

// signatures 编译好的可疑载荷特征表
// 廉价的启发式过滤：拦截明显的攻击载荷，不替代参数化查询与转义
var signatures = []signature{
	{"script_injection", regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|on(load|error|click|mouseover)\s*=)`)},
	{"sql_injection", regexp.MustCompile(`(?i)(\bunion\b[\s\S]{0,40}\bselect\b|\bdrop\s+table\b|\bdelete\s+from\b|'\s*or\s+'?1'?\s*=\s*'?1|--\s*$)`)},
	{"path_traversal", regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f|%2e%2e\\)`)},
}

// maxBodyScanBytes 载荷扫描上限，超过的部分不检查
const maxBodyScanBytes = 64 << 10

// Validation 返回载荷校验中间件
// 依次检查路径、查询串与文本类请求体，命中任一特征即 400
func (g *Guard) Validation() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sig := matchSignatures(c.Request.URL.Path); sig != "" {
			g.rejectValidation(c, &ValidationError{Source: "path", Signature: sig})
			return
		}
		if raw := c.Request.URL.RawQuery; raw != "" {
			if sig := matchSignatures(raw); sig != "" {
				g.rejectValidation(c, &ValidationError{Source: "query", Signature: sig})
				return
			}
		}

		if scannable(c.ContentType()) && c.Request.Body != nil {
			body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyScanBytes))
			if err != nil {
				// MaxBytesReader 越界等读取错误按体积限制处理
				g.reject(c, "size", "body_read_failed")
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
					"error": "request entity too large",
				})
				return
			}
			// 扫描后把已读部分拼回去，业务逻辑照常消费
			c.Request.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(body), c.Request.Body), c.Request.Body}

			if sig := matchSignatures(string(body)); sig != "" {
				g.rejectValidation(c, &ValidationError{Source: "body", Signature: sig})
				return
			}
		}

		c.Next()
	}
}

// rejectValidation 以 400 拒绝并透出校验错误
func (g *Guard) rejectValidation(c *gin.Context, verr *ValidationError) {
	g.reject(c, "validation", verr.Signature)
	c.Error(verr) //nolint:errcheck
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":  "invalid request payload",
		"source": verr.Source,
	})
}

// matchSignatures 返回首个命中的特征名，未命中返回空串
func matchSignatures(s string) string {
	for _, sig := range signatures {
		if sig.re.MatchString(s) {
			return sig.name
		}
	}
	return ""
}

// scannable 判断内容类型是否值得做文本扫描
func scannable(contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "application/json"),
		strings.HasPrefix(contentType, "application/x-www-form-urlencoded"),
		strings.HasPrefix(contentType, "text/"):
		return true
	}
	return false
}
