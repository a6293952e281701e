// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package steps implements the four pipeline steps over their collaborators.

	recall_memory     memory.Store.QueryRecent, replaces context
	recall_documents  embed query, VectorIndex search, appends DOC lines
	reason            one completion call at low temperature, sets answer
	commit_memory     memory.Store.AppendExchange of question and answer

Retrieval failures degrade to "no additional context". Registration failures
are logged and ignored. Model and commit failures abort the run.
*/
package steps
