// Package registry provides the central "glue" for the console commands.
//
// Modules register their commands under a name, a category and a help text.
// The shell resolves the first word of every input line through Lookup,
// which accepts the canonical CamelCase name in any letter case as well as
// kebab and snake spellings (delete-all-models, delete_all_models).
//
// During application startup the registry is populated by every module and
// then validated, so a misnamed or undocumented command fails fast instead
// of surfacing as an unknown command at the prompt.
package registry
