package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "sqlitedb"

// Topics builds the notification topic hierarchy under a prefix:
//
//	<prefix>/change/<operation>   change notifications
//	<prefix>/system/status        retained online/offline status
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Change returns the topic for notifications about op.
//
// Example: sqlitedb/change/create_table
func (t Topics) Change(op string) string {
	return t.prefix() + "/change/" + op
}

// AllChanges returns a wildcard matching every change topic.
func (t Topics) AllChanges() string {
	return t.prefix() + "/change/+"
}

// Status returns the retained service status topic.
func (t Topics) Status() string {
	return t.prefix() + "/system/status"
}
