package chat

import (
	"strings"

	"github.com/askislamically/backend/internal/model/chat"
)

// Greeting returns the opening assistant message for the user type and name.
func Greeting(userType chat.UserType, userName string) string {
	name := strings.TrimSpace(userName)
	clause := ""
	if name != "" {
		clause = ", " + name
	}

	if userType == chat.UserTypeNonMuslim {
		return "Welcome" + clause + "! I'm here to help you explore Islam and answer any questions you might have. Feel free to ask anything you're curious about."
	}
	return "Assalamu alaikum" + clause + "! I'm your Islamic AI assistant. How can I help you with your questions about Islam based on the Quran and Hadith?"
}
