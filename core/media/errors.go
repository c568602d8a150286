package media

import "fmt"

// ErrorKind 区分子进程层的三类错误
type ErrorKind int

const (
	// KindPrecondition 前置条件检查失败，子进程从未启动
	KindPrecondition ErrorKind = iota
	// KindExec 子进程以非零状态退出
	KindExec
	// KindUnexpectedOutput 子进程成功退出但输出无法解析成预期形状
	KindUnexpectedOutput
)

// OpError is the error type returned by every operation in this package.
type OpError struct {
	Op     string // "probe", "concat", "merge", "silence"
	Kind   ErrorKind
	Stderr string // captured stderr, empty when the process never ran
	Err    error
}

func (e *OpError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func preconditionErr(op, format string, args ...interface{}) *OpError {
	return &OpError{Op: op, Kind: KindPrecondition, Err: fmt.Errorf(format, args...)}
}
