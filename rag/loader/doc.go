// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

// Package loader reads source files into rag.Document values for ingestion.
//
// The built-in TextLoader handles .txt, .md, .py and .log files. LoaderRegistry
// routes by extension and LoadDir walks a directory tree, skipping files it
// cannot read:
//
//	registry := loader.NewLoaderRegistry(logger)
//	docs, err := registry.LoadDir(ctx, "/data/docs")
package loader
