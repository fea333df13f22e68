// Package server assembles the wordchain gateway process.
//
// New loads the word list and game patterns, opens the credential store,
// picks a notification sink and builds the agent manager and admin API.
// Run serves HTTP, resumes stored agents and, once its context ends,
// shuts down in order: HTTP, agents, notifier, store.
package server
