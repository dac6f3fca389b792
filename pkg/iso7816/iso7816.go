/*
Package iso7816 models the ISO/IEC 7816-4 command and response units exchanged with a smart card
and the small set of interindustry commands needed to walk a card file system.

It provides Command and Response APDU structures, Status Word (SW) analysis, a Client that
resolves T=0 transport procedures (61XX, 6CXX) on top of any Transmitter, SELECT and READ BINARY
builders, and parsers for the File Control Information returned by SELECT.

# Fundamentals

The communication with a smart card is strictly half-duplex:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

A second command must never be issued before the first response is back. The Client does not
enforce this itself; the Transmitter it is given is expected to serialize access to the slot.

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - 0x6282: Warning, end of file reached before Le bytes were read.
  - Other: Various error conditions.

The Client only resolves 61XX and 6CXX. Every other status word is left to the caller, because its
meaning depends on the command that produced it.

# Usage Example: Reading a transparent EF

	client := iso7816.NewClient(transmitter)
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(ctx, iso7816.SelectEF(cls, 0x0101))
	if err != nil {
	    return err
	}
	if !trace.IsSuccess() {
	    return fmt.Errorf("select failed: %s", trace.Last().Response.Status.Verbose())
	}

	cmd, _ := iso7816.ReadBinary(cls, 0, 0xFF)
	trace, err = client.Send(ctx, cmd)
	if err != nil {
	    return err
	}

	res, _ := iso7816.NewReadBinaryResult(trace)
	fmt.Println(res.Describe())
*/
package iso7816
