package storage

import (
	"errors"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"

	"cvlm/internal/ports"
)

// isMissingObject 只认明确的对象缺失：端口哨兵错误、NoSuchKey 错误码，
// 或者没有错误码的 404。其余错误（包括 Bucket 缺失）交给调用方按 500 处理。
func isMissingObject(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ports.ErrObjectNotFound) {
		return true
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch errorCode(resp) {
		case "nosuchkey", "notfound":
			return true
		case "":
			return resp.StatusCode == http.StatusNotFound
		}
		return false
	}

	// 网关把 S3 错误体压平成字符串时只剩原文。
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "nosuchkey") ||
		strings.Contains(lower, "specified key does not exist")
}

// isMissingBucket 识别 BucketExists 在部分网关上返回的 NoSuchBucket。
func isMissingBucket(err error) bool {
	var resp minio.ErrorResponse
	return errors.As(err, &resp) && errorCode(resp) == "nosuchbucket"
}

func errorCode(resp minio.ErrorResponse) string {
	return strings.ToLower(strings.TrimSpace(resp.Code))
}
