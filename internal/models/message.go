package models

// Streaming states of a rendered assistant message.
const (
	StreamingStateLoading   = "loading"
	StreamingStateStreaming = "streaming"
	StreamingStateEnded     = "ended"
)

// Greeting is the first assistant message of every transcript. It is shown but never sent to the API.
const Greeting = "Hi there 👋 - this is Andy the agent. What would you like to learn about me?"

// ExampleQuestions are the default shortcuts offered under the chat input.
var ExampleQuestions = []string{
	"What is an OLAS Agent?",
	"Give me an example of an OLAS Agent",
	"Show me a agent that predicts prediction markets",
	"How does the trader agent work?",
	"How do I make my own agent?",
	"Can you tell me how to stake OLAS in the easiest way possible?",
	"Give me content I can look at to learn more about OLAS",
}
