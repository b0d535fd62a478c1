// Package journal keeps a local, durable record of queue transitions,
// executed commands and connection changes. Entries live in Pebble under
// UUIDv7 keys so iteration order is time order.
package journal
