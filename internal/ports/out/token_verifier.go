package out

// TokenVerifier 握手令牌校验（签发在外部身份服务完成，这里只验签）
// 校验失败一律返回 entity.ErrAuthRejected，调用方必须关闭传输连接
type TokenVerifier interface {
	Verify(token string) (userID uint64, err error)
}
