package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 文件上传相关常量
const (
	MimePDF  = "application/pdf"
	MimeText = "text/plain"
)

var AllowedDocumentMimeTypes = []string{MimePDF, MimeText}
