// Package irc connects the routing core to IRC networks.
package irc

/*
Handler Summary:

Connection Events:
- connect: identifies to NickServ (unless SASL is used) and joins the
  configured channels
- disconnect: drops channel and account state, invalidates pending account
  lookups and ends every identification on the network

Messages:
- PRIVMSG (onPrivMsg): builds the sender identity, taking the services
  account from the account tag or the account cache, and hands the message
  to the routing core. CTCP requests are skipped.

Channel Membership:
- JOIN/PART/KICK/QUIT/NICK: keep the member lists current and report to the
  core so identifications follow the user
- 353 (onNames): RPL_NAMREPLY, with multi-prefix and userhost-in-names
- MODE (onMode): status mode changes, using PREFIX and CHANMODES

Services Accounts:
- JOIN with extended-join, ACCOUNT (account-notify): cache accounts
- 330 (onWhoisAccount): RPL_WHOISACCOUNT
- 318 (onWhoisEnd): RPL_ENDOFWHOIS, completes pending lookups

Nick Issues:
- 432/433 (onNickUnavailable): switches to the alternate nick and schedules
  RELEASE or GHOST and a nick change back

Presence:
- 601 RPL_LOGOFF, 605 RPL_NOWOFF (WATCH) and 731 RPL_MONOFFLINE (MONITOR)
  end the identification of a watched nick

CTCP:
- CTCP_VERSION: responds with bot version information
*/
