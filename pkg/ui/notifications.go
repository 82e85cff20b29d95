package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name=InstaBridge", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, quoteAppleScript(message), quoteAppleScript(title))
	return exec.Command("osascript", "-e", script).Run()
}

func quoteAppleScript(s string) string {
	return strings.ReplaceAll(s, `"`, `'`)
}

// Notifier tells the person at the machine that a scheduled run needs attention
type Notifier struct {
	sender   NotificationSender
	narrator Narrator
}

// NewNotifier picks the platform sender; unsupported platforms only narrate
func NewNotifier(narrator Narrator) *Notifier {
	var sender NotificationSender
	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	}
	return NewNotifierWithSender(sender, narrator)
}

// NewNotifierWithSender uses the given sender, which may be nil
func NewNotifierWithSender(sender NotificationSender, narrator Narrator) *Notifier {
	if narrator == nil {
		narrator = Silent{}
	}
	return &Notifier{sender: sender, narrator: narrator}
}

// RunFailed reports a scheduled run that did not complete
func (n *Notifier) RunFailed(recipient string, err error) {
	msg := fmt.Sprintf("Run for %s failed: %v", recipient, err)
	n.narrator.Error("%s", msg)
	n.send("InstaBridge run failed", msg)
}

// Unfollows reports lost followers found by a scheduled check
func (n *Notifier) Unfollows(usernames []string) {
	if len(usernames) == 0 {
		return
	}
	msg := fmt.Sprintf("%d unfollow(s): %s", len(usernames), strings.Join(usernames, ", "))
	n.narrator.Warn("%s", msg)
	n.send("InstaBridge unfollow alert", msg)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// Desktop notifications are best effort
	_ = n.sender.Send(title, message)
}
