package extractor

// Prompt is the fixed instruction sent with every recording. The JSON shape
// it asks for is decoded into types.AnalysisResult.
const Prompt = `You are analysing a recorded telecom customer support call.

Tasks:
1. Produce a complete transcript of the conversation.
2. Extract the fields below.

Fields:
- phone_number: the customer's 10-digit phone number as a string. If it is never mentioned, return "Not Found".
- complaint_type: exactly one of
  - "Recharge Issue"
  - "Payment Issue"
  - "Network Issue"
  - "Others" (anything else, or unclear)
- customer_sentiment: the customer's overall sentiment, one of "Positive", "Negative", "Neutral".
- resolved: true if the issue was resolved or the customer left satisfied, false otherwise.

Output:
Return ONLY one valid JSON object with exactly this structure and no other text:

{
  "transcript": "full conversation transcript here",
  "phone_number": "1234567890",
  "complaint_type": "Network Issue",
  "customer_sentiment": "Negative",
  "resolved": false
}

Rules:
- The phone number must be exactly 10 digits.
- Classify from what is actually said on the call.
- When something is unclear, use your best judgement.
`
