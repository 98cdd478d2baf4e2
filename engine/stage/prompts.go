package stage

const routerPrompt = `You are a query router. Analyze the following query and decide how it should be handled.
Return EXACTLY ONE of these values and nothing else: ANSWER, CLARIFY or REJECT.

Guidelines:
- ANSWER: the query is clear, specific and can be answered with factual information
- CLARIFY: the query is ambiguous, vague or needs more context
- REJECT: the query is inappropriate, harmful or completely out of scope

Query: %s

Decision:`

const reformulatorPrompt = `Rewrite the user query to be more precise for document search and extract its key search terms.
Never broaden the scope of the question.
Return only a JSON object of this shape:
{"refined_query": "reformulated question", "keywords": ["term1", "term2"]}

User query: %s`

const completionPrompt = `Decide whether the context below contains enough information to answer the query.
Return ONLY a number between 0 and 1:
- 1.0 means the context contains all the information needed
- 0.0 means the context has no relevant information
- values in between mean partial information

Context:
%s

Query: %s

Score (0.0-1.0):`

const answerPrompt = `Answer the question using ONLY the context below. Respond with a JSON object with these fields:
- "answer": your answer
- "citations": a list of objects, each with "text" (an exact quote from the context) and "relevance_score" (0 to 1)
- "confidence_score": your overall confidence, 0 to 1

If you are unsure, reflect that in confidence_score.

Context:
%s

Question: %s`
