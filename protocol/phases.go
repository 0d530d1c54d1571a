// Package protocol implements the measurement state machine shared by
// server and client: the line-based command grammar, the binary chunk
// framing inside GetChunks/GetTime/Put, and the signed result envelope.
// Both roles drive the same Phase sequence in opposite directions (server
// reacts to commands, client issues them), so the phase enum and the wire
// helpers in wire.go are role-agnostic; server.go and client.go hold the two
// directional drivers.
package protocol

// Phase enumerates every state a connection passes through, grouped by
// command. The listing order is not the run order: the client's schedule
// issues GETTIME before PUT. After the greeting, every command's phases
// end by returning to AcceptCommandSend/AcceptCommandReceive for the next
// command; GetChunks/GetTime/Put also loop on their own chunk phase.
type Phase int

const (
	PhaseGreetingSendVersion Phase = iota
	PhaseGreetingReceiveToken
	PhaseGreetingSendChunkSize

	PhaseAcceptCommandSend
	PhaseAcceptCommandReceive

	PhasePingSend
	PhasePingReceivePong

	PhaseGetChunksSendCommand
	PhaseGetChunksReceiveChunk
	PhaseGetChunksSendOk
	PhaseGetChunksReceiveTime

	PhasePutSendCommand
	PhasePutReceiveOk
	PhasePutSendChunk
	PhasePutReceiveTime

	PhaseGetTimeSendCommand
	PhaseGetTimeReceiveChunk
	PhaseGetTimeSendOk
	PhaseGetTimeReceiveTime

	PhaseSignedResult
	PhaseQuit
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseGreetingSendVersion:
		return "GreetingSendVersion"
	case PhaseGreetingReceiveToken:
		return "GreetingReceiveToken"
	case PhaseGreetingSendChunkSize:
		return "GreetingSendChunkSize"
	case PhaseAcceptCommandSend:
		return "AcceptCommandSend"
	case PhaseAcceptCommandReceive:
		return "AcceptCommandReceive"
	case PhasePingSend:
		return "PingSend"
	case PhasePingReceivePong:
		return "PingReceivePong"
	case PhaseGetChunksSendCommand:
		return "GetChunksSendCommand"
	case PhaseGetChunksReceiveChunk:
		return "GetChunksReceiveChunk"
	case PhaseGetChunksSendOk:
		return "GetChunksSendOk"
	case PhaseGetChunksReceiveTime:
		return "GetChunksReceiveTime"
	case PhasePutSendCommand:
		return "PutSendCommand"
	case PhasePutReceiveOk:
		return "PutReceiveOk"
	case PhasePutSendChunk:
		return "PutSendChunk"
	case PhasePutReceiveTime:
		return "PutReceiveTime"
	case PhaseGetTimeSendCommand:
		return "GetTimeSendCommand"
	case PhaseGetTimeReceiveChunk:
		return "GetTimeReceiveChunk"
	case PhaseGetTimeSendOk:
		return "GetTimeSendOk"
	case PhaseGetTimeReceiveTime:
		return "GetTimeReceiveTime"
	case PhaseSignedResult:
		return "SignedResult"
	case PhaseQuit:
		return "Quit"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
