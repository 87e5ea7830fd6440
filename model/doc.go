// Package model defines the provider‑agnostic abstractions for calling
// language models from flow nodes.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (anthropic, openai) implement the Model interface from this
// package so flows remain decoupled from vendor SDKs.
package model
