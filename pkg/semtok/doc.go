/*
Package semtok turns parsed prompt lines into LSP semantic token data.

Architecture:
------------

	Prompt Text                  LSP Server
	     |                           |
	     v                           v
	+----------+   cst nodes   +-----------+
	| @parser  | ------------> |  @semtok  |
	+----------+   (per line)  +-----------+
	                                 |
	                          +------+------+
	                          |             |
	                     LineBuffer      Builder
	                     (per line)    (document)

Token Types (legend order):
--------------------------

	index  name        source
	-----  ----        ------
	0      SingleTag   plain tag, whole range
	1      Bracket_1   open/close bracket, level 0
	2      Bracket_2   open/close bracket, level 1
	3      Bracket_3   open/close bracket, level 2
	4      Bracket_4   open/close bracket, level 3
	5      Bracket_5   open/close bracket, level 4 and deeper

Encoding:
--------
Every token is five integers

	[deltaLine, deltaColumn, length, tokenType, tokenModifiers]

A LineBuffer only ever emits deltaLine 0 and measures deltaColumn from the
previous token on the same line. The Builder fixes up deltaLine on the
first token of each line when it concatenates buffers.

Example Usage:
-------------

	tokens, err := semtok.GetTokensForText(ctx, content, position.UTF16)
	if err != nil {
	    return err
	}
	// tokens.Data goes straight into the LSP response
*/
package semtok
