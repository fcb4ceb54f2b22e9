package pipeline

import "github.com/serisow/claimdesk/pipeline_type"

// Context carries one question through the steps of its pipeline.
type Context struct {
    Question  string
    Namespace string

    Parsed   pipeline_type.ParsedQuery
    Passages []pipeline_type.Passage
    Decision *pipeline_type.Decision
    Reply    string

    // Done stops the remaining steps; Reply holds the final answer.
    Done bool
}

func NewContext(question, namespace string) *Context {
    return &Context{
        Question:  question,
        Namespace: namespace,
    }
}

// Finish sets the reply and skips the remaining steps.
func (c *Context) Finish(reply string) {
    c.Reply = reply
    c.Done = true
}

// Answer is the outcome recorded for the question.
func (c *Context) Answer() pipeline_type.Answer {
    return pipeline_type.Answer{
        Question:    c.Question,
        Reply:       c.Reply,
        ParsedQuery: c.Parsed,
        Decision:    c.Decision,
        Passages:    c.Passages,
    }
}
