/*
Package trace classifies a rule snapshot into the display states of a live
reasoning trace.

Classification is a pure function of its inputs: the same rules, fired rule
ids and current question fact always yield the same result, in input order.
*/
package trace
