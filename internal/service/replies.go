package service

import (
	"fmt"
	"strings"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/conversation"
)

const (
	replyGreeting = "Hello! Welcome to Applifix appliance service. Tell us what is wrong with your appliance " +
		"and we will arrange a technician, or ask us about spare parts and our service hours."
	replyMoreDetails   = "Could you tell me a little more? Which appliance is it, which brand, and what exactly is happening?"
	replyBusinessInfo  = "We are open Monday to Saturday, 9:00 to 19:00. Emergency repairs are attended around the clock."
	replySales         = "Happy to help you pick a new appliance. Our sales team will share current prices and offers with you."
	replyAskPhone      = "I can book a technician for this. Please share a phone number (at least 10 digits) our technician can call."
	replyEscalation    = "I am connecting you with a member of our team. Someone will contact you shortly."
	replyAcknowledged  = "Thank you, we have noted your request. Our team will get back to you shortly."
	replyEmergencyNote = "If there is a gas smell, smoke or sparking, switch off the power at the mains and keep away from the appliance."
)

func shortRef(taskID string) string {
	if len(taskID) > 8 {
		return strings.ToUpper(taskID[:8])
	}
	return strings.ToUpper(taskID)
}

func replySpareParts(details map[string]string) string {
	what := "the part"
	if b := details[conversation.EntityBrand]; b != "" {
		what = "the " + titleWord(b) + " part"
	}
	if a := details[conversation.EntityAppliance]; a != "" {
		what += " for your " + applianceLabel(a)
	}
	return fmt.Sprintf("We stock genuine spare parts. Please share the model number and we will check availability of %s.", what)
}

func replyTaskCreated(name string, details map[string]string, taskID string, res classify.ClassificationResult) string {
	var sb strings.Builder
	sb.WriteString("Thanks")
	if name != "" {
		sb.WriteString(", " + name)
	}
	appliance := "appliance"
	if a := details[conversation.EntityAppliance]; a != "" {
		appliance = applianceLabel(a)
	}
	fmt.Fprintf(&sb, ". We have registered a service request for your %s (reference %s). Priority: %s. Expected response: %s.",
		appliance, shortRef(taskID), res.UrgencyLevel, res.EstimatedResponseTime)
	if res.HasTag(classify.TagEmergency) {
		sb.WriteString(" " + replyEmergencyNote)
	}
	return sb.String()
}

func replyExistingTask(taskID string) string {
	return fmt.Sprintf("Your request is already registered (reference %s). Our technician will call you before the visit.", shortRef(taskID))
}

// replyFor picks the template for a message that did not create a task.
func replyFor(s *conversation.Session) string {
	if s.Stage == conversation.StageEscalation {
		return replyEscalation
	}
	if s.TaskID != "" {
		return replyExistingTask(s.TaskID)
	}
	switch s.CurrentIntent {
	case conversation.IntentSpareParts:
		return replySpareParts(s.InquiryDetails)
	case conversation.IntentSales:
		return replySales
	case conversation.IntentBusinessInfo:
		return replyBusinessInfo
	}
	if s.Stage == conversation.StageGreeting {
		return replyGreeting
	}
	return replyMoreDetails
}

func applianceLabel(v string) string {
	return strings.ReplaceAll(v, "_", " ")
}

func titleWord(v string) string {
	if v == "" {
		return v
	}
	words := strings.Fields(v)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
