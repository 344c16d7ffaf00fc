// Package entity exposes the AI Task and Conversation entities built from
// stored config entries.
//
// Each config entry gets its own OpenRouter client and dispatcher; each
// subentry becomes one entity addressed as ai_task.<slug> or
// conversation.<slug>. AI tasks are stateless. Conversations keep a bounded
// chat log per conversation id in memory only.
package entity
