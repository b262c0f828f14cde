// Package sources implements the research context providers: ArXiv paper
// search, GitHub repository search, web search, and a vector index, all
// behind the Source interface. Sources degrade independently; a missing
// credential disables a source rather than failing the gather step.
package sources
