package claim_service

import (
	"fmt"
	"strings"

	"github.com/serisow/claimdesk/pipeline_type"
)

// PassageDelimiter separates passages inside a prompt.
const PassageDelimiter = "\n---\n"

const parserSystemPrompt = "You are an expert at parsing user queries into a structured JSON format."

const parserPromptTemplate = `Extract the key details from the query below into a single JSON object with exactly these keys:
%s
If a detail is not present in the query, use null. Do not guess.

Query: %s

JSON Output:`

const decisionSystemPrompt = "You are an AI insurance claim evaluator. You decide ONLY on the basis of the policy clauses you are given and never use external knowledge."

const decisionPromptTemplate = `User's Claim Details:
%s

Relevant Policy Clauses (each starts with its [Clause N] label, separated by "---"):
%s

Instructions:
1. Analyze the User's Claim Details against the provided Policy Clauses.
2. Determine a final decision: "Approved" or "Rejected".
3. Specify the payout amount as a number if the clauses support one, otherwise use 0.
4. Provide a clear justification for your decision, referencing the specific clauses that support it.
5. Return your final answer as a single, valid JSON object with the keys "decision", "amount" and "justification".`

const formalSystemPrompt = "You are an AI assistant for an insurance company's claims department."

const formalPromptTemplate = `Write a formal reply to a policyholder about their claim decision.
The decision details are provided below in a JSON object.

- The reply must be professional and direct.
- Clearly state the final decision ("Approved" or "Rejected").
- Use the "justification" from the JSON to explain the reason for the decision in a formal tone. Do not simply copy it.
- Do not add any information not present in the provided JSON.

Decision JSON:
%s

Formal Reply:`

const answerPromptTemplate = `You are an expert at finding answers in a document.
Answer the following question based ONLY on the provided context.
If the answer is not in the context, state that the answer could not be found.
Be concise and extract the answer directly from the text.

Context: %s
Question: %s
Answer:`

// JoinPassages renders passages in retrieval order, each under a numbered
// [Clause N] label, with the delimiter between them. A delimiter line inside
// a passage is rewritten so it cannot be taken for a boundary.
func JoinPassages(passages []pipeline_type.Passage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		text := strings.ReplaceAll(strings.TrimSpace(p.Text), PassageDelimiter, "\n- - -\n")
		texts[i] = fmt.Sprintf("[Clause %d]\n%s", i+1, text)
	}
	return strings.Join(texts, PassageDelimiter)
}

func parserPrompt(schema *FactSchema, question string) string {
	return fmt.Sprintf(parserPromptTemplate, schema.Describe(), question)
}

func decisionPrompt(facts string, passages []pipeline_type.Passage) string {
	return fmt.Sprintf(decisionPromptTemplate, facts, JoinPassages(passages))
}

func formalPrompt(decisionJSON string) string {
	return fmt.Sprintf(formalPromptTemplate, decisionJSON)
}

func answerPrompt(question string, passages []pipeline_type.Passage) string {
	return fmt.Sprintf(answerPromptTemplate, JoinPassages(passages), question)
}
