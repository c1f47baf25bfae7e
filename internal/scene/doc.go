// Package scene composes encoded layers into a renderable scene.
//
// Each scale ("x", "y", "color", "size", "opacity", ...) is either shared
// across layers, with a domain covering every layer's values, or
// independent per layer, as declared by a Resolution. Linear domains are
// [min, max]; ordinal domains list distinct values in first-seen order.
package scene
