// Package ir defines the shared data model of the picking board.
//
// Items, fragments and transition events flow between the push channel,
// the persistence collaborator and the reconciliation engine. Nothing in
// this package has behavior beyond small constructors and helpers; the
// engine owns every mutation of the visible list.
package ir
