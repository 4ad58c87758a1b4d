// Package events is an in-process publish/subscribe bus.
//
// Publishers call Bus.Publish; observers register with Bus.Subscribe and
// read with Subscription.Next until they Close the subscription. Each
// subscriber owns a GrowableBuffer, so a slow observer loses its oldest
// events instead of blocking the publisher.
package events
