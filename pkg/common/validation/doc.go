/*
Package validation provides shared argument validators used by gostream
constructors.

Validators return *errors.ValidationError synchronously so that a bad
highWaterMark, size function result, or missing adapter fails at the call
site that supplied it, never later through a settled promise.
*/
package validation
