// Package emotion holds the prediction types shared by the inference client,
// the windower and the trigger evaluator.
package emotion
