package wire

// MessageType identifies an inbound client message on the wire
type MessageType string

const (
	MessageTypeBuzz           MessageType = "Buzz"
	MessageTypeChangeName     MessageType = "ChangeName"
	MessageTypeChangeSession  MessageType = "ChangeSession"
	MessageTypeCloseSession   MessageType = "CloseSession"
	MessageTypeResumeSession  MessageType = "ResumeSession"
	MessageTypePauseSession   MessageType = "PauseSession"
	MessageTypeResetSession   MessageType = "ResetSession"
	MessageTypeResetBlacklist MessageType = "ResetBlacklist"
	MessageTypeDisconnect     MessageType = "Disconnected"
	MessageTypeConnect        MessageType = "Connect"
)

// NotificationType identifies an outbound session notification on the wire
type NotificationType string

const (
	NotificationTypeReset             NotificationType = "Reset"
	NotificationTypeClosed            NotificationType = "Closed"
	NotificationTypeResumed           NotificationType = "Resumed"
	NotificationTypePaused            NotificationType = "Paused"
	NotificationTypeBlacklistCleared  NotificationType = "BlacklistCleared"
	NotificationTypeChanged           NotificationType = "Changed"
	NotificationTypeConnected         NotificationType = "Connected"
	NotificationTypeChangedName       NotificationType = "ChangedName"
	NotificationTypeDisconnected      NotificationType = "Disconnected"
	NotificationTypeConnectionSuccess NotificationType = "ConnectionSuccess"
	NotificationTypeBuzzed            NotificationType = "Buzzed"
)

// Status is the countdown phase of a session. It travels as a small integer.
type Status uint8

const (
	StatusPaused  Status = 0
	StatusRunning Status = 1
	StatusWaiting Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPaused:
		return "paused"
	case StatusRunning:
		return "running"
	case StatusWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// ClientMessage is one of the intents a participant can send to its session.
// The set of implementations is closed to this package.
type ClientMessage interface {
	MessageType() MessageType
	isClientMessage()
}

// Buzz signals that the participant wants to answer
type Buzz struct{}

// ChangeName renames the sending participant
type ChangeName struct {
	Name string `json:"name"`
}

// ChangeSession reconfigures the session label and countdown length.
// Timer is in seconds.
type ChangeSession struct {
	Name  string `json:"name"`
	Timer uint64 `json:"timer"`
}

type CloseSession struct{}

type ResumeSession struct{}

type PauseSession struct{}

type ResetSession struct{}

type ResetBlacklist struct{}

// Disconnect announces that the participant is leaving. Its wire tag is
// "Disconnected".
type Disconnect struct{}

// Connect asks the session to admit the sending connection as a participant
type Connect struct{}

func (Buzz) MessageType() MessageType           { return MessageTypeBuzz }
func (ChangeName) MessageType() MessageType     { return MessageTypeChangeName }
func (ChangeSession) MessageType() MessageType  { return MessageTypeChangeSession }
func (CloseSession) MessageType() MessageType   { return MessageTypeCloseSession }
func (ResumeSession) MessageType() MessageType  { return MessageTypeResumeSession }
func (PauseSession) MessageType() MessageType   { return MessageTypePauseSession }
func (ResetSession) MessageType() MessageType   { return MessageTypeResetSession }
func (ResetBlacklist) MessageType() MessageType { return MessageTypeResetBlacklist }
func (Disconnect) MessageType() MessageType     { return MessageTypeDisconnect }
func (Connect) MessageType() MessageType        { return MessageTypeConnect }

func (Buzz) isClientMessage()           {}
func (ChangeName) isClientMessage()     {}
func (ChangeSession) isClientMessage()  {}
func (CloseSession) isClientMessage()   {}
func (ResumeSession) isClientMessage()  {}
func (PauseSession) isClientMessage()   {}
func (ResetSession) isClientMessage()   {}
func (ResetBlacklist) isClientMessage() {}
func (Disconnect) isClientMessage()     {}
func (Connect) isClientMessage()        {}

// Notification is a state change pushed from a session to its participants.
// The set of implementations is closed to this package.
type Notification interface {
	NotificationType() NotificationType
	isNotification()
}

// Reset means timers are back to their initial duration and the buzz
// blacklist is empty
type Reset struct{}

type Closed struct{}

// Resumed starts a countdown. Left is the number of milliseconds remaining,
// which lets clients correct for drift after a pause.
type Resumed struct {
	Left uint64 `json:"left"`
}

type Paused struct{}

type BlacklistCleared struct{}

// Changed carries the new session label and countdown length in seconds
type Changed struct {
	Name  string `json:"name"`
	Timer uint64 `json:"timer"`
}

type Connected struct {
	Name string `json:"name"`
	ID   uint64 `json:"id"`
}

type ChangedName struct {
	Name string `json:"name"`
	ID   uint64 `json:"id"`
}

type Disconnected struct {
	ID uint64 `json:"id"`
}

// ConnectionSuccess is the private snapshot sent to a participant right after
// it joins. Timer is in seconds, Elapsed in milliseconds.
type ConnectionSuccess struct {
	ID      uint64 `json:"id"`
	IsAdmin bool   `json:"is_admin"`
	Name    string `json:"name"`
	Timer   uint64 `json:"timer"`
	Elapsed uint64 `json:"elapsed"`
	Status  Status `json:"status"`
}

type Buzzed struct {
	ID uint64 `json:"id"`
}

func (Reset) NotificationType() NotificationType             { return NotificationTypeReset }
func (Closed) NotificationType() NotificationType            { return NotificationTypeClosed }
func (Resumed) NotificationType() NotificationType           { return NotificationTypeResumed }
func (Paused) NotificationType() NotificationType            { return NotificationTypePaused }
func (BlacklistCleared) NotificationType() NotificationType  { return NotificationTypeBlacklistCleared }
func (Changed) NotificationType() NotificationType           { return NotificationTypeChanged }
func (Connected) NotificationType() NotificationType         { return NotificationTypeConnected }
func (ChangedName) NotificationType() NotificationType       { return NotificationTypeChangedName }
func (Disconnected) NotificationType() NotificationType      { return NotificationTypeDisconnected }
func (ConnectionSuccess) NotificationType() NotificationType { return NotificationTypeConnectionSuccess }
func (Buzzed) NotificationType() NotificationType            { return NotificationTypeBuzzed }

func (Reset) isNotification()             {}
func (Closed) isNotification()            {}
func (Resumed) isNotification()           {}
func (Paused) isNotification()            {}
func (BlacklistCleared) isNotification()  {}
func (Changed) isNotification()           {}
func (Connected) isNotification()         {}
func (ChangedName) isNotification()       {}
func (Disconnected) isNotification()      {}
func (ConnectionSuccess) isNotification() {}
func (Buzzed) isNotification()            {}
