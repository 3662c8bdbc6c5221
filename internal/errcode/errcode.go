package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：调用方可处理的错误（输入、权限、额度、资源状态）
// - 5xxx：系统错误，细节只写日志
const (
	OK                      = 0
	InvalidInput            = 4000
	Unauthorized            = 4001
	InsufficientPDFCredits  = 4002
	AccessDenied            = 4003
	ResourceMissing         = 4004
	InsufficientTextCredits = 4005
	Gone                    = 4010
	RateLimited             = 4029
	SystemError             = 5000
	GenerationFailed        = 5001
)
