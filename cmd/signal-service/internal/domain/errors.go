package domain

import "errors"

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded 会话已结束
	ErrSessionEnded = errors.New("session already ended")
	// ErrInvalidSender 发送方取值非法
	ErrInvalidSender = errors.New("sender must be user or agent")
	// ErrUnknownScorer 评分器名称未注册
	ErrUnknownScorer = errors.New("unknown satisfaction scorer")
)
