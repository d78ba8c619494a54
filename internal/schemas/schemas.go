// Package schemas defines the JSON contracts for model outputs and the
// parse-then-validate boundary that guards them. Model output is untyped text;
// nothing reads a field until the payload has passed its schema.
package schemas

// PlannerOutput is the contract for the planning stage.
const PlannerOutput = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "slug", "type", "brief", "targetKeywords", "targetWordCount", "priority"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "slug": {"type": "string", "minLength": 1},
          "type": {"type": "string"},
          "brief": {"type": "string", "minLength": 1},
          "targetKeywords": {"type": "array", "items": {"type": "string"}},
          "targetWordCount": {"type": "integer", "minimum": 1},
          "priority": {"type": "integer"},
          "evidenceIds": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

// WriterOutput is the contract for the writing stage.
const WriterOutput = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "metaTitle", "metaDescription", "excerpt", "body", "tags", "category"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "metaTitle": {"type": "string"},
    "metaDescription": {"type": "string"},
    "excerpt": {"type": "string"},
    "body": {"type": "string", "minLength": 1},
    "tags": {"type": "array", "items": {"type": "string"}},
    "category": {"type": "string"}
  }
}`

// QAOutput is the contract for the QA stage. The scores object is validated
// field-by-field in the QA stage itself; the schema only pins the envelope, so
// a missing dimension is reported as a scoring failure rather than a generic
// schema error.
const QAOutput = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["scores", "feedback"],
  "properties": {
    "scores": {"type": "object"},
    "feedback": {"type": "string"},
    "suggestions": {"type": "array", "items": {"type": "string"}}
  }
}`

// SocialOutput is the contract for publisher social drafts.
const SocialOutput = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["posts"],
  "properties": {
    "posts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["platform", "content"],
        "properties": {
          "platform": {"type": "string"},
          "content": {"type": "string", "minLength": 1},
          "hashtags": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

// ResearchExtraction is the contract for model-side evidence extraction.
const ResearchExtraction = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "summary", "keyFindings", "relevanceScore"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "summary": {"type": "string", "minLength": 1},
    "keyFindings": {"type": "array", "items": {"type": "string"}},
    "relevanceScore": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`
