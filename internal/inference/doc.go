// Package inference implements the WebSocket client for the streaming emotion
// inference API. Each call opens one connection, sends one payload (a base64 WAV
// for prosody or raw text for language), decodes one response and closes.
// Concurrent calls are bounded by a semaphore and no call is retried.
package inference
