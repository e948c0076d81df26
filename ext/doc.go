/*
Package ext contains implementations that interact
with services outside of scale.
At the moment, the following implementations are available:
  - Messaging
    Message backends for sqs, kafka and any
    gocloud.dev pubsub url.
*/
package ext
