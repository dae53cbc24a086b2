// Package jwtauth implements the stages of bearer token verification:
// structural decoding (Decode), signature and standard-claims verification
// (Verifier), and post-verification claim policy (CheckPolicy).
//
// Each stage either succeeds or returns an error; stages recognise only the
// failures they produce and pass everything else through unchanged.
package jwtauth
