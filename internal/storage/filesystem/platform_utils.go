package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// PlatformUtils 平台兼容性工具
type PlatformUtils struct{}

// NewPlatformUtils 创建平台工具实例
func NewPlatformUtils() *PlatformUtils {
	return &PlatformUtils{}
}

// SanitizeFilename 清理文件名，确保跨平台兼容
func (p *PlatformUtils) SanitizeFilename(filename string) string {
	// 1. 移除路径分隔符
	filename = filepath.Base(filename)

	// 2. 移除或替换不允许的字符
	for _, char := range p.getInvalidChars() {
		filename = strings.ReplaceAll(filename, char, "_")
	}

	// 3. 移除控制字符
	filename = p.removeControlChars(filename)

	// 4. 限制长度
	filename = p.limitLength(filename, 200)

	// 5. 移除前后空格和点
	filename = strings.Trim(filename, " .")

	// 6. 确保不为空
	if filename == "" {
		filename = "unnamed"
	}

	return filename
}

// getInvalidChars 获取当前平台不允许的字符
func (p *PlatformUtils) getInvalidChars() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"<", ">", ":", "\"", "|", "?", "*", "\\", "/", "\x00"}
	case "darwin", "linux":
		return []string{"/", "\x00"}
	default:
		// 保守处理，移除所有可能的问题字符
		return []string{"<", ">", ":", "\"", "|", "?", "*", "\\", "/", "\x00"}
	}
}

// removeControlChars 移除控制字符
func (p *PlatformUtils) removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// limitLength 限制文件名长度，保留扩展名
func (p *PlatformUtils) limitLength(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	ext := filepath.Ext(s)
	nameWithoutExt := strings.TrimSuffix(s, ext)

	availableLen := maxLen - len(ext)
	if availableLen <= 0 {
		return ext
	}

	return nameWithoutExt[:availableLen] + ext
}

// ValidatePath 验证路径是否安全
func (p *PlatformUtils) ValidatePath(path string) error {
	if len(path) > 2000 {
		return fmt.Errorf("path too long: %d characters", len(path))
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal detected: %s", path)
	}

	return nil
}

// IsCaseSensitive 检查当前文件系统是否大小写敏感
func (p *PlatformUtils) IsCaseSensitive() bool {
	switch runtime.GOOS {
	case "windows":
		return false
	default:
		return true
	}
}

// NormalizePath 标准化路径
func (p *PlatformUtils) NormalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	cleanPath := filepath.Clean(absPath)

	// 大小写不敏感的文件系统统一用小写路径
	if !p.IsCaseSensitive() {
		cleanPath = strings.ToLower(cleanPath)
	}

	return cleanPath
}
