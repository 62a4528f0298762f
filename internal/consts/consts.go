package consts

// NotifyTypeEvent 是通知消息的类型前缀（4 字节小端，见 utils.EncodeMessage）
const NotifyTypeEvent uint32 = 1

// 日志行结构常量：事件 payload 以 "Program data: " 前缀 + base64 形式出现在交易日志中
const (
	ProgramDataPrefix = "Program data: "
	ProgramLogPrefix  = "Program log: "
)
