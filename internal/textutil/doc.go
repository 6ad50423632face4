// Package textutil provides text processing utilities for title comparison
// and filename sanitization.
//
// The primary use cases are:
//   - Normalizing show titles so release-name spellings and metadata
//     spellings compare equal
//   - Computing similarity between a parsed title and candidate show names
//   - Sanitizing titles for safe use as directory and file names
//
// Similarity uses term frequency vectors with cosine scoring. Tokenization
// lowercases text, splits on non-alphanumeric characters, and filters tokens
// shorter than 3 characters.
package textutil
