// Package controllers holds the admin API handlers, one controller per
// resource, each registering its routes on a chi router.
package controllers
