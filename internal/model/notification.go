package model

// NotificationType classifies a real-time notification line (">TYPE:payload").
type NotificationType int

const (
	NotificationLog = NotificationType(iota)
	NotificationState
	NotificationHold
	NotificationPassword
	NotificationReady
	NotificationEcho
	NotificationByteCount
	NotificationProxy
	NotificationNeedOK
	NotificationNeedStr
	NotificationInfoMsg
	NotificationPkcs11IDCount
	NotificationPkcs11IDEntry
)

// String maps a [NotificationType] to the prefix used on the wire.
func (nt NotificationType) String() string {
	switch nt {
	case NotificationLog:
		return "LOG"
	case NotificationState:
		return "STATE"
	case NotificationHold:
		return "HOLD"
	case NotificationPassword:
		return "PASSWORD"
	case NotificationReady:
		return "INFO"
	case NotificationEcho:
		return "ECHO"
	case NotificationByteCount:
		return "BYTECOUNT"
	case NotificationProxy:
		return "PROXY"
	case NotificationNeedOK:
		return "NEED-OK"
	case NotificationNeedStr:
		return "NEED-STR"
	case NotificationInfoMsg:
		return "INFOMSG"
	case NotificationPkcs11IDCount:
		return "PKCS11ID-COUNT"
	case NotificationPkcs11IDEntry:
		return "PKCS11ID-ENTRY"
	default:
		return "UNKNOWN"
	}
}

// Notification is a classified real-time notification.
type Notification struct {
	// Type is the notification type.
	Type NotificationType

	// Payload is the text following "TYPE:".
	Payload string
}
