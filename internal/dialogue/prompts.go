package dialogue

import (
	"fmt"
	"strings"
)

// Prompts holds every fixed reply, written in the pivot language. The
// composer translates them like any other reply.
type Prompts struct {
	ChooseLanguage     string
	UnresolvedLanguage string
	LanguageFirst      string
	AskName            string
	EmptyName          string
	NameAsText         string
	Welcome            string // %s is the display name
	EmptyQuestion      string
	QueryApology       string
	InternalError      string
}

// DefaultPrompts builds the English prompts around the catalog labels.
func DefaultPrompts(languageLabels []string) Prompts {
	list := strings.Join(languageLabels, ", ")
	return Prompts{
		ChooseLanguage: "Welcome to AgriLoop, your farming assistant! " +
			"Which language would you like to use? Reply with its name, for example: " + list + ".",
		UnresolvedLanguage: "Sorry, I did not recognise that language. Please reply with one of: " + list + ".",
		LanguageFirst:      "Please choose a language first by replying with its name, for example: Hindi.",
		AskName:            "Great! What is your name?",
		EmptyName:          "Please tell me your name.",
		NameAsText:         "Please send your name as a text message.",
		Welcome: "Welcome, %s! You are all set. Ask me any farming question, " +
			"or send a photo of your crop and I will check it for pests and diseases.",
		EmptyQuestion: "Please type your question.",
		QueryApology:  "Sorry, I could not get an answer right now. Please send your question again in a little while.",
		InternalError: "Sorry, something went wrong on our side. Please send your message again.",
	}
}

func (p Prompts) welcome(name string) string {
	return fmt.Sprintf(p.Welcome, name)
}
