// Package catalog is the registry of callable tools.
//
// Tools are registered once at startup and the catalog is then sealed.
// After Seal, List and Resolve read without locking.
//
// Each tool declares typed parameters. Tool.Bind turns decoded JSON
// arguments into Args by checking required parameters and coercing values
// to the declared type. It also applies defaults and enforces numeric
// bounds, either clamping or rejecting per parameter. Unknown arguments are
// ignored.
//
// List returns metadata and a JSON schema per tool but never the handler,
// so enumerating tools does not grant a way to invoke them.
package catalog
