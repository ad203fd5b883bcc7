package xe

import "github.com/go-orz/orz"

var (
	ErrInvalidParams    = orz.NewError(10400, "参数无效")
	ErrInvalidToken     = orz.NewError(10403, "令牌无效")
	ErrNotFound         = orz.NewError(10404, "数据不存在")
	ErrPermissionDenied = orz.NewError(10401, "您没有权限查看/修改/删除此数据")

	ErrAccountAlreadyUsed = orz.NewError(10000, "账户已被使用")
	ErrIncorrectPassword  = orz.NewError(10001, "账户或密码错误")
	ErrAlreadySetup       = orz.NewError(10002, "系统已经初始化，无法重复设置")

	ErrPositionExists = orz.NewError(10010, "该合约已在跟踪中，不能重复建仓")
	ErrInvalidStatus  = orz.NewError(10011, "不允许的状态变更")
	ErrReviewNotReady = orz.NewError(10012, "AI 复盘未配置")
)
