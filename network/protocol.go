package network

const (
	MsgTypeHeartbeat = 1

	// client -> server
	MsgTypeWatch   = 101
	MsgTypeUnwatch = 102
	MsgTypeOperate = 201

	// server -> client
	MsgTypeMachineState = 301
	MsgTypeError        = 302
)
